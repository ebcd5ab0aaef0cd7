package clgeoip

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/oschwald/geoip2-golang/v2"
)

// MaxMindProvider lit une base GeoLite2/GeoIP2 City locale
type MaxMindProvider struct {
	reader *geoip2.Reader
}

func OpenMaxMind(path string) (*MaxMindProvider, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ouverture base maxmind %s: %w", path, err)
	}
	return &MaxMindProvider{reader: reader}, nil
}

func (p *MaxMindProvider) Lookup(_ context.Context, ip string) (Location, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}

	record, err := p.reader.City(addr)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if !record.HasData() {
		return Location{}, fmt.Errorf("%w: no record for %s", ErrLookupFailed, ip)
	}

	loc := Location{
		City:    record.City.Names.English,
		Country: record.Country.Names.English,
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names.English
	}
	if record.Location.Latitude != nil {
		loc.Lat = *record.Location.Latitude
	}
	if record.Location.Longitude != nil {
		loc.Lng = *record.Location.Longitude
	}
	return loc, nil
}

func (p *MaxMindProvider) Close() error {
	return p.reader.Close()
}

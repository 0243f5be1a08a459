// Package gtfstest builds small GTFS bundles for tests.
package gtfstest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// SampleFeed is a tiny two-route network.
//
// Route 505 has two directions; its eastbound pattern has a short-turn trip
// (T3) so the canonical pattern is the longer T1. Service WKDY runs Monday to
// Friday in January 2024, WKND runs weekends, and HOL only exists through
// calendar_dates. 2024-01-15 (a Monday) removes WKDY and adds WKND.
// Route 13 (trip T5) runs WKDY and carries a post-midnight time.
var SampleFeed = map[string]string{
	"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
		"1,TTC,https://www.ttc.ca,America/Toronto\n",
	"stops.txt": "\ufeffstop_id,stop_name,stop_lat,stop_lon\n" +
		"S1,Dundas St West at Bathurst,43.6526,-79.4065\n" +
		"S2,Dundas St West at Spadina,43.6530,-79.3980\n" +
		"S3,Dundas St West at University,43.6549,-79.3878\n" +
		"S4,Avenue Rd at Bloor,43.6700,-79.3940\n",
	"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type,route_color,route_text_color\n" +
		"R505,1,505,DUNDAS,0,FF0000,FFFFFF\n" +
		"R13,1,13,AVENUE RD,3,,\n" +
		"R10,1,10,VAN HORNE,3,,\n" +
		"R9A,1,9A,EXPRESS,3,,\n",
	"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
		"WKDY,1,1,1,1,1,0,0,20240101,20240131\n" +
		"WKND,0,0,0,0,0,1,1,20240101,20240131\n",
	"calendar_dates.txt": "service_id,date,exception_type\n" +
		"WKDY,20240115,2\n" +
		"WKND,20240115,1\n" +
		"HOL,20240101,1\n" +
		"HOL,20240102,1\n" +
		"HOL,20240102,2\n",
	"trips.txt": "route_id,service_id,trip_id,trip_headsign,direction_id\n" +
		"R505,WKDY,T1,East - 505 Dundas towards Broadview,0\n" +
		"R505,WKDY,T2,West - 505 Dundas towards Dundas West,1\n" +
		"R505,WKDY,T3,East - 505 Dundas short turn,0\n" +
		"R505,WKND,T4,East - 505 Dundas towards Broadview,0\n" +
		"R13,WKDY,T5,South - 13A Avenue Rd towards Queen's Park,\n" +
		"R13,HOL,T6,South - 13 Avenue Rd,\n",
	"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"T1,08:00:00,08:00:30,S1,1\n" +
		"T1,08:05:00,08:05:30,S2,2\n" +
		"T1,08:10:00,08:10:30,S3,3\n" +
		"T2,09:00:00,09:00:00,S3,1\n" +
		"T2,09:10:00,09:10:00,S1,2\n" +
		"T3,07:50:00,07:50:00,S2,1\n" +
		"T3,07:55:00,07:55:00,S3,2\n" +
		"T4,10:00:00,10:00:00,S1,1\n" +
		"T4,10:05:00,10:05:00,S2,2\n" +
		"T5,23:50:00,23:50:00,S4,1\n" +
		"T5,25:10:00,25:10:00,S2,2\n" +
		"T5,bogus,,S2,3\n" +
		"T6,12:00:00,12:00:00,S4,1\n",
}

// WriteZip writes files into a zip under t.TempDir and returns its path.
func WriteZip(t testing.TB, files map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gtfs.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating zip: %v", err)
	}
	defer f.Close()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(f)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("adding %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return path
}

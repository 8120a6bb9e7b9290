package database

import (
	"testing"

	"github.com/lanternchat/streamhub/internal/config"
)

func TestConnURL(t *testing.T) {
	u := connURL(config.DBConfig{
		Host:     "archive-db.internal",
		Port:     5433,
		Name:     "transcripts",
		User:     "streamhub",
		Password: "sw0rd:fish/@",
		SSLMode:  "require",
	})

	if u.Scheme != "postgres" {
		t.Errorf("Scheme = %q, want postgres", u.Scheme)
	}
	if u.Host != "archive-db.internal:5433" {
		t.Errorf("Host = %q, want archive-db.internal:5433", u.Host)
	}
	if u.Path != "/transcripts" {
		t.Errorf("Path = %q, want /transcripts", u.Path)
	}
	if got := u.Query().Get("sslmode"); got != "require" {
		t.Errorf("sslmode = %q, want require", got)
	}
	if u.User.Username() != "streamhub" {
		t.Errorf("user = %q, want streamhub", u.User.Username())
	}

	// The awkward password must survive a URL round trip.
	pw, set := u.User.Password()
	if !set || pw != "sw0rd:fish/@" {
		t.Errorf("password = %q (set=%v), want original back", pw, set)
	}
}

func TestConnURLDefaultSSLMode(t *testing.T) {
	u := connURL(config.DBConfig{
		Host: "localhost",
		Port: 5432,
		Name: "transcripts",
		User: "streamhub",
	})

	if got := u.Query().Get("sslmode"); got != "prefer" {
		t.Errorf("sslmode = %q, want prefer when unset", got)
	}
}

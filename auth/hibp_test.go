package auth_test

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/auth"
)

func hashParts(pw string) (prefix, suffix string) {
	sum := sha1.Sum([]byte(pw))
	h := strings.ToUpper(hex.EncodeToString(sum[:]))
	return h[:5], h[5:]
}

func TestCheckerFindsBreachedPassword(t *testing.T) {
	const pw = "password123"
	prefix, suffix := hashParts(pw)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, prefix) {
			t.Errorf("queried %s, want the 5-char prefix %s", r.URL.Path, prefix)
		}
		fmt.Fprintf(w, "0018A45C4D1DEF81644B54AB7F969B88D65:3\r\n")
		fmt.Fprintf(w, "%s:42\r\n", strings.ToLower(suffix))
		fmt.Fprintf(w, "011053FD0102E94D6AE2F8B83D76FAF94F6:1\r\n")
	}))
	defer srv.Close()

	c := auth.Checker{BaseURL: srv.URL + "/range/"}
	res, err := c.Check(context.Background(), pw)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !res.Found || res.Count != 42 {
		t.Fatalf("Check = %+v, want Found with count 42", res)
	}
}

func TestCheckerMissIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "0018A45C4D1DEF81644B54AB7F969B88D65:3\r\n")
	}))
	defer srv.Close()

	c := auth.Checker{BaseURL: srv.URL + "/range/"}
	res, err := c.Check(context.Background(), "some unlisted password")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if res.Found || res.Count != 0 {
		t.Fatalf("Check = %+v, want a clean miss", res)
	}
}

func TestCheckerRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := auth.Checker{BaseURL: srv.URL + "/range/"}
	if _, err := c.Check(context.Background(), "anything"); err == nil {
		t.Fatal("Check accepted a non-200 response")
	}
}

package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brandon/adex-market-monitor/internal/models"
)

const listing = `[{"id":"0xaaa","depositAsset":"0xdai","depositAmount":"100",
"status":{"name":"Active","usdEstimate":1,"lastApprovedBalances":{"v":"10"},"lastChecked":1000},
"spec":{"minPerImpression":"1","validators":[{"url":"https://v1"}]}}]`

func TestFetchChannels(t *testing.T) {
	var accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(listing))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil)
	channels, err := client.FetchChannels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(channels) != 1 || channels[0].ID != "0xaaa" {
		t.Fatalf("unexpected channels: %+v", channels)
	}
	if accept != "application/json" {
		t.Errorf("expected Accept application/json, got %q", accept)
	}
}

func TestFetchChannelsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).FetchChannels(context.Background())
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *NetworkError, got %T (%v)", err, err)
	}
	if netErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", netErr.StatusCode)
	}
}

func TestFetchChannelsMalformedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"0x1"}]`))
	}))
	defer srv.Close()

	channels, err := NewClient(srv.URL, time.Second, nil).FetchChannels(context.Background())
	var decodeErr *models.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *models.DecodeError, got %T (%v)", err, err)
	}
	if channels != nil {
		t.Fatal("expected no channels on decode failure")
	}
}

func TestFetchChannelsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second, nil).FetchChannels(context.Background())
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *NetworkError, got %T (%v)", err, err)
	}
	if netErr.StatusCode != 0 {
		t.Errorf("expected no status code, got %d", netErr.StatusCode)
	}
}

func TestFetchChannelsHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(srv.URL, 5*time.Second, nil).FetchChannels(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}

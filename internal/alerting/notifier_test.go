package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sentiment-alerts/internal/classify"
)

func spikeAlert(symbol string) Alert {
	prev := decimal.NewFromInt(64)
	return Alert{
		Symbol:            symbol,
		Name:              symbol,
		Sentiment:         decimal.NewFromInt(90),
		PreviousSentiment: &prev,
		ChangeType:        classify.Spike,
		Message:           fmt.Sprintf("📈 %s sentiment spike! Now at 90/100 (+26.0 from 64, +40.6%%)", symbol),
		Timestamp:         time.Now().UTC(),
	}
}

func dropAlert(symbol string) Alert {
	prev := decimal.NewFromInt(50)
	return Alert{
		Symbol:            symbol,
		Name:              symbol,
		Sentiment:         decimal.NewFromInt(25),
		PreviousSentiment: &prev,
		ChangeType:        classify.Drop,
		Message:           fmt.Sprintf("📉 %s sentiment drop! Now at 25/100 (-25.0 from 50, -50.0%%)", symbol),
		Timestamp:         time.Now().UTC(),
	}
}

func captureWebhook(t *testing.T, status int) (*httptest.Server, *[]webhookPayload) {
	t.Helper()

	var payloads []webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type %s", ct)
		}

		var p webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		payloads = append(payloads, p)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &payloads
}

func TestNotifySendsSingleEmbed(t *testing.T) {
	srv, payloads := captureWebhook(t, http.StatusNoContent)

	n := NewDiscordNotifier(srv.URL, 10, time.Second, zerolog.Nop())
	err := n.Notify(context.Background(), []Alert{spikeAlert("BTC")})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if len(*payloads) != 1 {
		t.Fatalf("expected 1 webhook call, got %d", len(*payloads))
	}
	p := (*payloads)[0]
	if len(p.Embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(p.Embeds))
	}

	e := p.Embeds[0]
	if e.Title != "🚨 Crypto Sentiment Alerts" {
		t.Errorf("unexpected title %q", e.Title)
	}
	if e.Description != "1 significant sentiment change detected" {
		t.Errorf("unexpected description %q", e.Description)
	}
	if e.Color != colorGreen {
		t.Errorf("spike-only batch should be green, got %#x", e.Color)
	}
	if e.Footer.Text != footerText {
		t.Errorf("unexpected footer %q", e.Footer.Text)
	}
	if len(e.Fields) != 1 || e.Fields[0].Name != "BTC 📈" {
		t.Errorf("unexpected fields: %+v", e.Fields)
	}
}

func TestNotifyRedWhenAnyDrop(t *testing.T) {
	srv, payloads := captureWebhook(t, http.StatusOK)

	n := NewDiscordNotifier(srv.URL, 10, time.Second, zerolog.Nop())
	alerts := []Alert{spikeAlert("BTC"), dropAlert("DOGE"), spikeAlert("ETH")}
	if err := n.Notify(context.Background(), alerts); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	e := (*payloads)[0].Embeds[0]
	if e.Color != colorRed {
		t.Errorf("batch containing a drop should be red, got %#x", e.Color)
	}
	if e.Description != "3 significant sentiment changes detected" {
		t.Errorf("unexpected description %q", e.Description)
	}
}

func TestNotifyTruncatesFieldList(t *testing.T) {
	srv, payloads := captureWebhook(t, http.StatusNoContent)

	n := NewDiscordNotifier(srv.URL, 10, time.Second, zerolog.Nop())
	alerts := make([]Alert, 0, 12)
	for i := 0; i < 12; i++ {
		alerts = append(alerts, spikeAlert(fmt.Sprintf("C%02d", i)))
	}
	if err := n.Notify(context.Background(), alerts); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	e := (*payloads)[0].Embeds[0]
	if len(e.Fields) != 10 {
		t.Fatalf("expected field list truncated to 10, got %d", len(e.Fields))
	}
	// The description still reports the full batch.
	if e.Description != "12 significant sentiment changes detected" {
		t.Errorf("unexpected description %q", e.Description)
	}
	if e.Fields[0].Name != "C00 📈" || e.Fields[9].Name != "C09 📈" {
		t.Errorf("truncation changed ordering: %+v", e.Fields)
	}
}

func TestNotifyEmptyBatchIsNoop(t *testing.T) {
	srv, payloads := captureWebhook(t, http.StatusNoContent)

	n := NewDiscordNotifier(srv.URL, 10, time.Second, zerolog.Nop())
	if err := n.Notify(context.Background(), nil); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(*payloads) != 0 {
		t.Fatalf("empty batch must not call the webhook, got %d calls", len(*payloads))
	}
}

func TestNotifyReportsWebhookFailure(t *testing.T) {
	srv, _ := captureWebhook(t, http.StatusBadRequest)

	n := NewDiscordNotifier(srv.URL, 10, time.Second, zerolog.Nop())
	if err := n.Notify(context.Background(), []Alert{spikeAlert("BTC")}); err == nil {
		t.Fatal("expected an error for non-2xx webhook response")
	}
}

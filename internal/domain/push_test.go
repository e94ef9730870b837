package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func validSubscription() Subscription {
	return Subscription{
		Endpoint: "https://fcm.googleapis.com/fcm/send/abc",
		Keys: Keys{
			P256dh: "BNcRdreALRFXTkOOUHK1EtK2wtaz5Ry4YfYCA_0QTpQtUbVlUls0VJXg7A8u-Ts1XbjhazAkj7I99e8QcYP7DkM",
			Auth:   "tBHItJI5svbpez7KI4CCXg",
		},
		DeviceID: "device-1",
	}
}

func TestSubscriptionValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Subscription)
		wantErr bool
	}{
		{
			name:   "valid subscription",
			mutate: func(s *Subscription) {},
		},
		{
			name: "missing endpoint",
			mutate: func(s *Subscription) {
				s.Endpoint = " "
			},
			wantErr: true,
		},
		{
			name: "relative endpoint",
			mutate: func(s *Subscription) {
				s.Endpoint = "/fcm/send/abc"
			},
			wantErr: true,
		},
		{
			name: "non http scheme",
			mutate: func(s *Subscription) {
				s.Endpoint = "ftp://push.example.com/x"
			},
			wantErr: true,
		},
		{
			name: "missing p256dh",
			mutate: func(s *Subscription) {
				s.Keys.P256dh = ""
			},
			wantErr: true,
		},
		{
			name: "missing auth",
			mutate: func(s *Subscription) {
				s.Keys.Auth = ""
			},
			wantErr: true,
		},
		{
			name: "device id is optional",
			mutate: func(s *Subscription) {
				s.DeviceID = ""
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := validSubscription()
			tt.mutate(&s)

			err := s.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestSubscriptionHost(t *testing.T) {
	t.Parallel()

	s := validSubscription()
	if got := s.Host(); got != "fcm.googleapis.com" {
		t.Fatalf("Host() = %q, want fcm.googleapis.com", got)
	}

	s.Endpoint = "::bad"
	if got := s.Host(); got != "unknown" {
		t.Fatalf("Host() = %q, want unknown", got)
	}
}

func TestPayloadValidateAndMarshal(t *testing.T) {
	t.Parallel()

	if err := (Payload{Body: "no title"}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}

	p := Payload{Title: "Solo", Body: "hi"}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	raw, err := p.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if _, ok := decoded["tag"]; ok {
		t.Fatal("empty tag should be omitted")
	}
	if _, ok := decoded["url"]; ok {
		t.Fatal("empty url should be omitted")
	}
	if decoded["title"] != "Solo" || decoded["body"] != "hi" {
		t.Fatalf("decoded = %v", decoded)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	results := []Result{
		{Endpoint: "https://a/1", Success: true, StatusCode: 201},
		{Endpoint: "https://a/2", Success: true, StatusCode: 201},
		{Endpoint: "https://a/3", StatusCode: 410, ShouldRemove: true},
		{Endpoint: "https://a/4", StatusCode: 429},
		{Endpoint: "https://a/5", Error: "connection refused"},
		{Endpoint: "https://a/6", StatusCode: 404, ShouldRemove: true},
	}

	summary := Summarize(results)
	if summary.Sent != 2 {
		t.Fatalf("Sent = %d, want 2", summary.Sent)
	}
	if summary.Failed != 4 {
		t.Fatalf("Failed = %d, want 4", summary.Failed)
	}
	if len(summary.ExpiredEndpoints) != 2 || summary.ExpiredEndpoints[0] != "https://a/3" || summary.ExpiredEndpoints[1] != "https://a/6" {
		t.Fatalf("ExpiredEndpoints = %v", summary.ExpiredEndpoints)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	summary := Summarize(nil)
	if summary.Sent != 0 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want zero counts", summary)
	}
	if summary.ExpiredEndpoints == nil {
		t.Fatal("ExpiredEndpoints should be an empty slice, not nil")
	}
}

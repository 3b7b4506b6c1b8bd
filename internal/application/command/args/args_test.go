package args

import (
	"testing"
	"time"
)

type request struct {
	Selection
	Items
	Date string `validate:"omitempty,datetime=2006-01-02"`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     request
		wantErr bool
	}{
		{name: "unit", req: request{Selection: Selection{Unit: "shop"}}},
		{name: "group", req: request{Selection: Selection{Group: "edge"}}},
		{name: "empty scope", req: request{}, wantErr: true},
		{name: "bad date", req: request{Selection: Selection{Host: "h1"}, Date: "18.10.2026"}, wantErr: true},
		{name: "good date", req: request{Selection: Selection{Host: "h1"}, Date: "2026-10-18"}},
		{name: "database path", req: request{Selection: Selection{Unit: "shop"}, Items: Items{Database: "../etc"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-10-18")
	if err != nil || !d.Equal(time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ParseDate = %v, %v", d, err)
	}
	if d, err := ParseDate(""); err != nil || !d.IsZero() {
		t.Errorf("ParseDate(\"\") = %v, %v", d, err)
	}
	if _, err := ParseDate("yesterday"); err == nil {
		t.Error("ParseDate accepted garbage")
	}
}

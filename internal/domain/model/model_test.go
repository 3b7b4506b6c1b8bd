package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestArtifactNameRoundTrip(t *testing.T) {
	day := time.Date(2026, 3, 14, 22, 5, 0, 0, time.UTC)
	tests := []struct {
		name   string
		id     string
		ext    string
		failed bool
	}{
		{"db dump", "shop.orders", "sql.zst", false},
		{"archive", "auth", "tar.gz", false},
		{"failed dump", "shop.orders", "sql.zst", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := ArtifactName(tt.id, day, tt.ext)
			if tt.failed {
				name = FailedArtifactName(tt.id, day, tt.ext)
			}
			info, ok := ParseArtifactName(name)
			if !ok {
				t.Fatalf("ParseArtifactName(%q) failed", name)
			}
			if info.Identifier != tt.id || info.Ext != tt.ext || info.Failed != tt.failed {
				t.Errorf("ParseArtifactName(%q) = %+v", name, info)
			}
			if !info.Date.Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("date = %v", info.Date)
			}
		})
	}
}

func TestFailedNameNeverCollides(t *testing.T) {
	day := time.Now()
	if ArtifactName("db", day, "sql.gz") == FailedArtifactName("db", day, "sql.gz") {
		t.Fatal("failed and successful artifact names are identical")
	}
}

func TestIdentifierDisambiguates(t *testing.T) {
	if got := Identifier("shop", "orders"); got != "shop.orders" {
		t.Errorf("Identifier = %q", got)
	}
	if got := Identifier("my app", "a/b"); got != "my-app.a-b" {
		t.Errorf("Identifier = %q", got)
	}
	if Identifier("shop", "a") == Identifier("shop", "b") {
		t.Error("distinct databases share an identifier")
	}
}

func TestBatchStatus(t *testing.T) {
	ok := OperationResult{Status: StatusSuccess}
	bad := OperationResult{Status: StatusFailed}
	tests := []struct {
		name    string
		results []OperationResult
		err     error
		want    Status
	}{
		{"all ok", []OperationResult{ok, ok}, nil, StatusSuccess},
		{"one failed", []OperationResult{ok, bad, ok}, nil, StatusPartial},
		{"all failed", []OperationResult{bad, bad}, nil, StatusFailed},
		{"aborted empty", nil, errors.New("x"), StatusFailed},
		{"aborted after success", []OperationResult{ok}, errors.New("x"), StatusPartial},
		{"planned", []OperationResult{{Status: StatusPlanned}}, nil, StatusPlanned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &BatchReport{Results: tt.results, Err: tt.err}
			if got := b.Status(); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassOf(t *testing.T) {
	if ClassOf(fmt.Errorf("restore: %w", ErrConfirmationRequired)) != ClassSafetyCritical {
		t.Error("confirmation error is not safety critical")
	}
	if ClassOf(Classify(ClassTransient, errors.New("pull"))) != ClassTransient {
		t.Error("classified error lost its class")
	}
	if ClassOf(errors.New("boom")) != ClassFatal {
		t.Error("unclassified error is not fatal")
	}
}

func TestParseEngineKind(t *testing.T) {
	if k, err := ParseEngineKind("postgresql"); err != nil || k != EnginePostgres {
		t.Errorf("ParseEngineKind(postgresql) = %v, %v", k, err)
	}
	if _, err := ParseEngineKind("oracle"); !errors.Is(err, ErrUnsupportedEngine) {
		t.Errorf("ParseEngineKind(oracle) error = %v", err)
	}
}

package health

import (
	"math"
	"math/big"
	"testing"
)

func milli(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(1e15))
}

func TestClassifyBoundaries(t *testing.T) {
	cases := map[int64]Zone{
		3000: ZoneSafe,
		2999: ZoneWarning,
		1500: ZoneWarning,
		1499: ZoneDanger,
		1100: ZoneDanger,
		1099: ZoneCritical,
		0:    ZoneCritical,
	}
	for hf, want := range cases {
		if got := Classify(milli(hf)); got != want {
			t.Fatalf("classify(%d/1000): expected %s, got %s", hf, want, got)
		}
	}
	if got := Classify(nil); got != ZoneCritical {
		t.Fatalf("expected nil to be critical, got %s", got)
	}
	if got := Classify(new(big.Int).Lsh(big.NewInt(1), 255)); got != ZoneSafe {
		t.Fatalf("expected max health factor to be safe, got %s", got)
	}
}

func TestClassifyFloatBoundaries(t *testing.T) {
	if ClassifyFloat(3.0) != ZoneSafe || ClassifyFloat(2.999) != ZoneWarning {
		t.Fatalf("unexpected safe/warning boundary")
	}
	if ClassifyFloat(1.5) != ZoneWarning || ClassifyFloat(1.499) != ZoneDanger {
		t.Fatalf("unexpected warning/danger boundary")
	}
	if ClassifyFloat(1.1) != ZoneDanger || ClassifyFloat(1.099) != ZoneCritical {
		t.Fatalf("unexpected danger/critical boundary")
	}
	if ClassifyFloat(math.NaN()) != ZoneCritical {
		t.Fatalf("expected NaN to be critical")
	}
}

func TestCalculateLeverage(t *testing.T) {
	if got := CalculateLeverage(big.NewInt(0), big.NewInt(12345)); got != 1 {
		t.Fatalf("expected 1 for zero collateral, got %f", got)
	}
	if got := CalculateLeverage(big.NewInt(100), big.NewInt(50)); got != 2 {
		t.Fatalf("expected 2, got %f", got)
	}
	if got := CalculateLeverage(big.NewInt(100), big.NewInt(0)); got != 1 {
		t.Fatalf("expected 1 without debt, got %f", got)
	}
	if got := CalculateLeverage(big.NewInt(100), big.NewInt(150)); got != 1 {
		t.Fatalf("expected floor of 1 for debt above collateral, got %f", got)
	}
	if got := CalculateLeverage(big.NewInt(100), big.NewInt(100)); !math.IsInf(got, 1) {
		t.Fatalf("expected +Inf for zero equity, got %f", got)
	}
}

func TestFormatLeverage(t *testing.T) {
	if got := FormatLeverage(2.5); got != "2.50x" {
		t.Fatalf("expected 2.50x, got %q", got)
	}
	if got := FormatLeverage(math.Inf(1)); got != "∞" {
		t.Fatalf("expected ∞ for zero equity, got %q", got)
	}
}

func TestFormatHealthFactor(t *testing.T) {
	if got := FormatHealthFactor(milli(11000)); got != ">10.0" {
		t.Fatalf("expected >10.0, got %q", got)
	}
	if got := FormatHealthFactor(milli(10000)); got != "10.00" {
		t.Fatalf("expected 10.00 at the cap, got %q", got)
	}
	if got := FormatHealthFactor(milli(2345)); got != "2.35" {
		t.Fatalf("expected 2.35, got %q", got)
	}
	if got := FormatHealthFactor(milli(1099)); got != "1.10" {
		t.Fatalf("expected 1.10, got %q", got)
	}
	if got := FormatHealthFactor(big.NewInt(0)); got != "0.00" {
		t.Fatalf("expected 0.00, got %q", got)
	}
}

func TestFormatLTV(t *testing.T) {
	if got := FormatLTV(big.NewInt(7000)); got != "70.00%" {
		t.Fatalf("expected 70.00%%, got %q", got)
	}
	if got := FormatLTV(big.NewInt(6543)); got != "65.43%" {
		t.Fatalf("expected 65.43%%, got %q", got)
	}
	if got := FormatLTV(big.NewInt(5)); got != "0.05%" {
		t.Fatalf("expected 0.05%%, got %q", got)
	}
}

func TestZoneSeverityOrder(t *testing.T) {
	if !(ZoneSafe.Severity() < ZoneWarning.Severity() &&
		ZoneWarning.Severity() < ZoneDanger.Severity() &&
		ZoneDanger.Severity() < ZoneCritical.Severity()) {
		t.Fatalf("unexpected severity order")
	}
	if ZoneDanger.Label() != "Danger" || ZoneCritical.Description() == "" {
		t.Fatalf("unexpected zone display")
	}
}

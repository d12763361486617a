package logging

import (
	"math"
	"strings"
	"testing"
)

func TestFormatMetric(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		decimals int
		want     string
	}{
		{"zero", 0.0, 2, "0.00"},
		{"positive", 3.14159, 2, "3.14"},
		{"negative", -16.5, 1, "-16.5"},
		{"large", 12345.6789, 2, "12345.68"},
		{"small_normal", 0.001, 3, "0.001"},
		{"very_small_scientific", 0.00001, 2, "1.00e-05"},
		{"very_small_negative", -0.00001, 2, "-1.00e-05"},
		{"nan", math.NaN(), 2, MissingValue},
		{"positive_inf", math.Inf(1), 2, MissingValue},
		{"negative_inf", math.Inf(-1), 2, MissingValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatMetric(tt.value, tt.decimals)
			if got != tt.want {
				t.Errorf("formatMetric(%v, %d) = %q, want %q", tt.value, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestFormatMetricSigned(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		decimals int
		want     string
	}{
		{"positive", 2.5, 1, "+2.5"},
		{"negative", -1.2, 1, "-1.2"},
		{"zero", 0.0, 1, "+0.0"},
		{"nan", math.NaN(), 1, MissingValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatMetricSigned(tt.value, tt.decimals)
			if got != tt.want {
				t.Errorf("formatMetricSigned(%v, %d) = %q, want %q", tt.value, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestFormatMetricWithUnit(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		decimals int
		unit     string
		want     string
	}{
		{"with_unit", 8.5, 1, "Hz", "8.5 Hz"},
		{"no_unit", 1234.5, 1, "", "1234.5"},
		{"nan_with_unit", math.NaN(), 1, "Hz", MissingValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatMetricWithUnit(tt.value, tt.decimals, tt.unit)
			if got != tt.want {
				t.Errorf("formatMetricWithUnit(%v, %d, %q) = %q, want %q", tt.value, tt.decimals, tt.unit, got, tt.want)
			}
		})
	}
}

func TestMetricTableString(t *testing.T) {
	t.Run("per_channel_columns", func(t *testing.T) {
		table := NewMetricTable("TP9", "AF7", "AF8", "TP10")
		table.AddRow("Alpha Power", []string{"1.20", "1.05", "0.98", "1.31"}, "uV²", "")
		table.AddRow("Beta Power", []string{"0.61", "0.70", "0.66", "0.59"}, "uV²", "")

		output := table.String()

		for _, want := range []string{"TP9", "AF7", "AF8", "TP10", "Alpha Power", "1.20", "uV²"} {
			if !strings.Contains(output, want) {
				t.Errorf("output should contain %q:\n%s", want, output)
			}
		}
	})

	t.Run("missing_values_render_dash", func(t *testing.T) {
		table := NewMetricTable("TP9", "AF7")
		table.AddMetricRow("Theta Power", 2, "", "", 0.42, math.NaN())

		output := table.String()
		if !strings.Contains(output, MissingValue) {
			t.Errorf("NaN value should render as %q:\n%s", MissingValue, output)
		}
	})

	t.Run("empty_table_renders_nothing", func(t *testing.T) {
		table := NewMetricTable("TP9")
		if got := table.String(); got != "" {
			t.Errorf("empty table should render empty string, got %q", got)
		}
	})

	t.Run("interpretation_column_only_when_present", func(t *testing.T) {
		table := NewMetricTable("Score")
		table.AddRow("fatigue", []string{"0.70"}, "", "dominant")

		output := table.String()
		if !strings.Contains(output, "Interpretation") {
			t.Errorf("expected interpretation header:\n%s", output)
		}
		if !strings.Contains(output, "dominant") {
			t.Errorf("expected interpretation text:\n%s", output)
		}
	})
}

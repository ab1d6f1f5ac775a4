package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleCase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"sally smith", "Sally Smith"},
		{"o'brien", "O'Brien"},
		{"jOHN sMITH", "JOHN SMITH"},
		{"45 wyndham", "45 Wyndham"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TitleCase(tt.in), "TitleCase(%q)", tt.in)
	}
}

func TestNormalizeJobTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"her sink fixed", "Sink Repair"},
		{"", "Job"},
		{"x", "Job"},
		{"the", "Job"},
		{"blocked drain", "Unblock Drain"},
		{"needs the toilet unblocked", "Toilet Unblock"},
		{"install ceiling fan", "Install Ceiling Fan"},
		{"replaced the cracked tiles", "Replacement Cracked Tiles"},
		{"  Cleaning   Gutters. ", "Clean Gutters"},
		{"my aircon serviced", "Aircon Serviced"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeJobTitle(tt.in), "NormalizeJobTitle(%q)", tt.in)
	}
}

func TestCategoriseWork(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"Sink Repair", CategoryPlumbing},
		{"leaking roof", CategoryPlumbing},
		{"flickering lights", CategoryElectrical},
		{"aircon not cooling", CategoryHVAC},
		{"jammed door", CategoryCarpentry},
		{"colorbond flashing", CategoryRoofing},
		{"peeling paint", CategoryPainting},
		{"regrout splashback", CategoryTiling},
		{"mow the lawn", CategoryGeneral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CategoriseWork(tt.in), "CategoriseWork(%q)", tt.in)
	}
}

func TestCategoriseWork_StableUnderNormalization(t *testing.T) {
	fixtures := []string{
		"her sink fixed",
		"blocked drain",
		"toilet unblocked",
		"install ceiling fan",
		"replaced the cracked tiles",
		"painting the fence",
		"cleaning gutters",
		"aircon serviced",
		"fix the jammed door",
		"repaired roof flashing",
		"mow the lawn",
	}
	for _, raw := range fixtures {
		assert.Equal(t, CategoriseWork(raw), CategoriseWork(NormalizeJobTitle(raw)), "fixture %q", raw)
	}
}

func TestEnrichAddress(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"45 wyndham st alexandria", "45 Wyndham Street, Alexandria"},
		{"12 Wyndham St", "12 Wyndham Street"},
		{"3/12 king st. newtown", "3/12 King Street, Newtown"},
		{"7 ocean pde", "7 Ocean Parade"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EnrichAddress(tt.in), "EnrichAddress(%q)", tt.in)
	}
}

func TestEnrichAddress_Idempotent(t *testing.T) {
	once := EnrichAddress("45 wyndham st alexandria")
	assert.Equal(t, once, EnrichAddress(once))
}

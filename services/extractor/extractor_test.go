package extractor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeliveryID(t *testing.T) {
	t.Run("truncates to eight chars and strips whitespace", func(t *testing.T) {
		got := DeliveryID("Some header\nShipping Note No.: AB123456XYZ\nfooter")
		require.Equal(t, "AB123456", got)
	})

	t.Run("tolerates spacing inside the identifier", func(t *testing.T) {
		got := DeliveryID("shipping note no - AB 12 34 56 789")
		require.Equal(t, "AB123456", got)
	})

	t.Run("label is case-insensitive", func(t *testing.T) {
		got := DeliveryID("SHIPPING NOTE NO. ZZ999888")
		require.Equal(t, "ZZ999888", got)
	})

	t.Run("no label yields empty", func(t *testing.T) {
		require.Empty(t, DeliveryID("invoice no. AB123456"))
	})

	t.Run("empty input yields empty", func(t *testing.T) {
		require.Empty(t, DeliveryID(""))
	})
}

func TestEAD(t *testing.T) {
	t.Run("full document", func(t *testing.T) {
		text := "[N325] CD987654321\n" +
			"[POW01] Inspection\n" +
			"Nr MRN 12PLAAAAAAAAAAAAAA\n" +
			"Date of release for export: 2024-03-07\n"
		got := EAD(text)
		require.Equal(t, "CD987654", got.Delivery)
		require.Equal(t, "Inspection", got.ProcessCode)
		require.Equal(t, "12PLAAAAAAAAAAAAAA", got.MRN)
		require.Equal(t, "2024-03-07", got.ReleaseDate)
	})

	t.Run("bare N325 label without brackets", func(t *testing.T) {
		got := EAD("N325: EF11223344")
		require.Equal(t, "EF112233", got.Delivery)
	})

	t.Run("process code falls back to 9DK8", func(t *testing.T) {
		got := EAD("[9DK8] Standard export \n next line")
		require.Equal(t, "Standard export", got.ProcessCode)
	})

	t.Run("POW01 wins over 9DK8", func(t *testing.T) {
		got := EAD("[9DK8] fallback\n[POW01] primary")
		require.Equal(t, "primary", got.ProcessCode)
	})

	t.Run("loose MRN reconstruction near label", func(t *testing.T) {
		got := EAD("MRN: 12 P L AA AA-AA AAAA AAAA")
		require.Equal(t, "12PLAAAAAAAAAAAAAA", got.MRN)
	})

	t.Run("document-wide strict fallback without label", func(t *testing.T) {
		got := EAD("some preamble 34PLBBBBBBBBBBBBBB trailing")
		require.Equal(t, "34PLBBBBBBBBBBBBBB", got.MRN)
	})

	t.Run("day-first release date with dots", func(t *testing.T) {
		got := EAD("Date of release for export 7.3.2024")
		require.Equal(t, "2024-03-07", got.ReleaseDate)
	})

	t.Run("release date with en dash separators", func(t *testing.T) {
		got := EAD("Date of release for export: 2024–3–7")
		require.Equal(t, "2024-03-07", got.ReleaseDate)
	})

	t.Run("non-breaking spaces are normalized", func(t *testing.T) {
		got := EAD("[N325] GH55667788")
		require.Equal(t, "GH556677", got.Delivery)
	})

	t.Run("unrelated text yields zero value", func(t *testing.T) {
		got := EAD("lorem ipsum dolor sit amet")
		require.Equal(t, EADData{}, got)
	})
}

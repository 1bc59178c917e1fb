package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHeader(t *testing.T) {
	t.Run("embedded line break equals clean header", func(t *testing.T) {
		assert.Equal(t, NormalizeHeader("เลขที่เบิกใหม่"), NormalizeHeader("เลขที่เบิก\nใหม่"))
	})

	t.Run("carriage return and tab are dropped", func(t *testing.T) {
		assert.Equal(t, "เลขที่เบิก", NormalizeHeader("เลขที่\r\nเบิก\t"))
	})

	t.Run("internal spaces collapse", func(t *testing.T) {
		assert.Equal(t, NormalizeHeader("เลขที่เบิก ใหม่"), NormalizeHeader("เลขที่เบิกใหม่"))
	})

	t.Run("latin headers are upper-cased and trailing dot trimmed", func(t *testing.T) {
		assert.Equal(t, "REPNO", NormalizeHeader("Rep No."))
	})

	t.Run("zero-width space is dropped", func(t *testing.T) {
		assert.Equal(t, "HN", NormalizeHeader("H​N"))
	})

	t.Run("empty stays empty", func(t *testing.T) {
		assert.Equal(t, "", NormalizeHeader(""))
	})
}

func TestMatchHeader(t *testing.T) {
	t.Run("thai claim number variants map to claim_no", func(t *testing.T) {
		for _, raw := range []string{"เลขที่เบิก", "เลขที่เบิกใหม่", "เลขที่เบิก\nใหม่", "tran_id"} {
			field, ok := MatchHeader(raw)
			assert.True(t, ok, "header %q should match", raw)
			assert.Equal(t, FieldClaimNo, field)
		}
	})

	t.Run("unknown header does not match", func(t *testing.T) {
		_, ok := MatchHeader("ลำดับ")
		assert.False(t, ok)
	})
}

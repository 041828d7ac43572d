package merge

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// PrefixDigest hashes every bar dated on or before through. A cached table
// is only extended when the raw history it was computed from still hashes
// the same, which catches back-adjusted prices and deleted sessions.
func PrefixDigest(bars []model.Bar, through time.Time) string {
	h := sha256.New()
	var buf [8]byte
	put := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	for _, b := range bars {
		if b.Date.After(through) {
			break
		}
		h.Write([]byte(model.FormatDate(b.Date)))
		put(b.Open)
		put(b.High)
		put(b.Low)
		put(b.Close)
		put(b.PrevClose)
		put(b.ChangePct)
		put(b.Volume)
		put(b.Turnover)
	}
	return hex.EncodeToString(h.Sum(nil))
}

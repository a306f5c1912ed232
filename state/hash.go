package state

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

var palette = [...]string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7", "#DDA0DD", "#FFB6C1", "#20B2AA", "#FF69B4", "#32CD32",
	"#FF4500", "#8A2BE2", "#DC143C", "#00CED1", "#FFD700", "#FF1493", "#00FA9A", "#1E90FF", "#FF8C00", "#9370DB",
	"#3CB371", "#BA55D3", "#FF6347", "#4682B4", "#D2691E", "#6A5ACD", "#FF7F50", "#40E0D0", "#EE82EE", "#F0E68C",
	"#B22222", "#5F9EA0", "#FF00FF", "#00FF7F", "#FFA500", "#4169E1", "#FA8072", "#00BFFF", "#F4A460", "#9932CC",
	"#FF00BF", "#2E8B57", "#FF5FA2", "#00D9FF", "#B8FF00", "#FF3E96", "#00E5FF", "#FFE600", "#6B00FF", "#FF9E00",
}

// stringHash is the classic 31-multiplier hash over UTF-16 code units,
// wrapping at 32 bits, so ids hash the same as on the web client.
func stringHash(s string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h<<5 - h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// ColorFor maps a participant id onto the palette.
func ColorFor(participantID string) string {
	return palette[stringHash(participantID)%int64(len(palette))]
}

// Fingerprint is a soft, non-cryptographic device signature used only as a
// duplicate-join hint.
func Fingerprint(parts ...string) string {
	return strconv.FormatInt(stringHash(strings.Join(parts, "_")), 36)
}

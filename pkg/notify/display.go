package notify

import (
	"fmt"
	"time"
)

// FormatDisplayID renders the human-readable sequential id shown in chat
// confirmations: a per-organization daily sequence formatted as NN/DDMM,
// e.g. the third answer on March 7th is "03/0703".
func FormatDisplayID(seq int, day time.Time) string {
	return fmt.Sprintf("%02d/%s", seq, day.Format("0201"))
}

package util

import "time"

var kst = time.FixedZone("KST", 9*60*60)

// FormatKST는 시간을 한국 표준시로 변환해 layout으로 출력.
func FormatKST(t time.Time, layout string) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(kst).Format(layout)
}

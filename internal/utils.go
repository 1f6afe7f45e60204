package internal

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

func StringContains(slice []string, s string) bool {
	for _, e := range slice {
		if e == s {
			return true
		}
	}
	return false
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FormatBytes renders a byte count in a human-readable binary unit, keeping
// the exact count alongside for anything above 1 KiB.
func FormatBytes(n uint64) string {
	if n < 1024 {
		return fmt.Sprintf("%d Bytes", n)
	}
	units := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	z := 0
	v := float64(n) / 1024.0
	for v > 1024.0 && z < len(units)-1 {
		z++
		v /= 1024.0
	}
	return fmt.Sprintf("%.2f %s (%d Bytes)", v, units[z], n)
}

var durationRe = regexp.MustCompile(`^([0-9]+d)?([0-9]+h)?([0-9]+m)?([0-9.]+s?)?$`)

// Duration parses a human duration like "30s", "5m", "1d2h" or a plain
// number of seconds ("1.5"). Invalid input yields zero.
func Duration(s string) time.Duration {
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(v * float64(time.Second))
	}

	if !durationRe.MatchString(s) {
		return 0
	}

	if p := strings.Index(s, "d"); p >= 0 {
		days, err := strconv.Atoi(s[:p])
		if err != nil {
			return 0
		}
		rest := Duration(s[p+1:])
		return time.Duration(days)*24*time.Hour + rest
	}
	d, err2 := time.ParseDuration(s)
	if err2 != nil {
		return 0
	}
	return d
}

// RemovePassword replaces the password part of a URL-ish string with "****"
// so connection addresses can be logged safely.
func RemovePassword(uri string) string {
	p := strings.LastIndex(uri, "@")
	if p < 0 {
		return uri
	}
	sp := strings.Index(uri, "://") + 3
	if sp == 2 {
		sp = 0
	}
	cp := strings.Index(uri[sp:], ":")
	if cp < 0 || sp+cp > p {
		return uri
	}
	return uri[:sp+cp+1] + "****" + uri[p:]
}

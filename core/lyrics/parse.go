package lyrics

import (
	"regexp"
	"strconv"
	"strings"
)

// [mm:ss.cc]text
var lrcPattern = regexp.MustCompile(`^\[(\d+):(\d+)\.(\d+)\](.+)$`)

// 分段标记，例如 [Chorus]、[Verse 1: Artist]
var sectionHeader = regexp.MustCompile(`^\[[^\]]*\]$`)

// ParseLRC 解析 LRC 文本，不匹配的行直接跳过，结果按时间升序
func ParseLRC(text string) []Line {
	var lines []Line
	for _, raw := range strings.Split(text, "\n") {
		m := lrcPattern.FindStringSubmatch(strings.TrimSpace(raw))
		if m == nil {
			continue
		}
		minutes, _ := strconv.Atoi(m[1])
		seconds, _ := strconv.Atoi(m[2])
		frac, err := fractionSeconds(m[3])
		if err != nil {
			continue
		}
		content := strings.TrimSpace(m[4])
		if content == "" {
			continue
		}
		lines = append(lines, Line{
			Timestamp: float64(minutes*60+seconds) + frac,
			Text:      content,
		})
	}
	// 来源不保证有序
	sortLines(lines)
	return lines
}

// fractionSeconds 按位数解析小数部分："50" -> 0.50，"5" -> 0.5，"500" -> 0.500
func fractionSeconds(digits string) (float64, error) {
	return strconv.ParseFloat("0."+digits, 64)
}

// EstimateTimestamps 给没有时间轴的歌词均匀分配时间戳（近似值，不是真实对齐）
func EstimateTimestamps(text string, durationMs int64) []Line {
	var contents []string
	for _, raw := range strings.Split(text, "\n") {
		if s := strings.TrimSpace(raw); s != "" {
			contents = append(contents, s)
		}
	}
	if len(contents) == 0 {
		return nil
	}

	durationSec := float64(durationMs) / 1000.0
	interval := durationSec / float64(len(contents))

	lines := make([]Line, len(contents))
	for i, c := range contents {
		lines[i] = Line{Timestamp: float64(i) * interval, Text: c}
	}
	return lines
}

// StripSectionHeaders 去掉 [Chorus] 之类的分段标记行
func StripSectionHeaders(text string) string {
	var kept []string
	for _, raw := range strings.Split(text, "\n") {
		if sectionHeader.MatchString(strings.TrimSpace(raw)) {
			continue
		}
		kept = append(kept, raw)
	}
	return strings.Join(kept, "\n")
}

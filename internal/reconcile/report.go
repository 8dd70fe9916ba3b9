package reconcile

import (
	"fmt"
	"io"
	"strings"
)

type State int

const (
	Complete State = iota
	Incomplete
	// Empty：白名单国家在数据集中没有合格 locality；仅提示，不参与提取也不阻塞完成判定
	Empty
)

func (s State) String() string {
	switch s {
	case Complete:
		return "complete"
	case Incomplete:
		return "incomplete"
	case Empty:
		return "empty"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// CountryStatus：单个国家的对账结果，每次对账重新计算，不持久化
type CountryStatus struct {
	CountryCode string `json:"countryCode"`
	CountryName string `json:"countryName"`
	DBCount     int    `json:"dbCount"`
	FileCount   int    `json:"fileCount"`
	State       State  `json:"-"`
}

func (c CountryStatus) IsComplete() bool { return c.DBCount > 0 && c.DBCount == c.FileCount }

func classify(c CountryStatus) State {
	switch {
	case c.DBCount == 0:
		return Empty
	case c.IsComplete():
		return Complete
	}
	return Incomplete
}

type Report struct {
	Countries []CountryStatus
}

func (r Report) AllComplete() bool { return len(r.IncompleteCountries()) == 0 }

// IncompleteCountries：保持目标国家顺序
func (r Report) IncompleteCountries() []string {
	var out []string
	for _, c := range r.Countries {
		if c.State == Incomplete {
			out = append(out, c.CountryCode)
		}
	}
	return out
}

func (r Report) Count(s State) int {
	n := 0
	for _, c := range r.Countries {
		if c.State == s {
			n++
		}
	}
	return n
}

func statusLabel(s State) string {
	switch s {
	case Complete:
		return "✓ Complete"
	case Empty:
		return "- Nothing to extract"
	}
	return "✗ Incomplete"
}

// WriteTable：countryCode | countryName | dbCount | fileCount | status
func (r Report) WriteTable(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s | %-29s | %-8s | %-10s | %s\n", "Country Code", "Country Name", "DB Count", "File Count", "Status")
	fmt.Fprintf(&b, "%s|%s|%s|%s|%s\n", strings.Repeat("-", 13), strings.Repeat("-", 31), strings.Repeat("-", 10), strings.Repeat("-", 12), strings.Repeat("-", 8))
	for _, c := range r.Countries {
		fmt.Fprintf(&b, "%-12s | %-29s | %-8d | %-10d | %s\n", c.CountryCode, c.CountryName, c.DBCount, c.FileCount, statusLabel(c.State))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Filter：仅保留指定状态的国家，顺序不变
func (r Report) Filter(states ...State) Report {
	var out Report
	for _, c := range r.Countries {
		for _, s := range states {
			if c.State == s {
				out.Countries = append(out.Countries, c)
				break
			}
		}
	}
	return out
}

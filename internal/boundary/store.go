// 包 boundary：WhosOnFirst 行政边界数据集的只读查询层（locality 计数、检索、包围盒）
package boundary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"pmtiles-api/internal/logger"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	// ErrDataLayer：数据集不可读或损坏；对当前操作致命，不重试
	ErrDataLayer = errors.New("boundary data layer error")
	// ErrInvalidPage：分页参数非法，调用方应在查询前拒绝
	ErrInvalidPage = errors.New("page and limit must be positive integers")
)

// eligible：进入检索与提取的 locality 条件，与数据集中的 spr 表字段对应
var eligible = []string{
	"placetype = 'locality'",
	"is_current = 1",
	"is_deprecated = 0",
	"name IS NOT NULL",
	"name != ''",
	"latitude IS NOT NULL",
	"longitude IS NOT NULL",
	"min_longitude IS NOT NULL",
	"min_latitude IS NOT NULL",
	"max_longitude IS NOT NULL",
	"max_latitude IS NOT NULL",
	"min_longitude <= max_longitude",
	"min_latitude <= max_latitude",
}

// Store：边界数据集访问入口，持有连接池；启动时构造一次，显式 Close 结束生命周期
// 约束：只读；*sql.DB 自身保证并发安全，任意数量的读协程可共享同一实例
type Store struct {
	db      *sql.DB
	dialect string
	targets []string
}

// AttachDB：包装已打开的连接；dialect 取值 sqlite / postgres，决定占位符风格
// targets 为空时目标国家取数据集中出现的全部国家
func AttachDB(db *sql.DB, dialect string, targets []string) *Store {
	return &Store{db: db, dialect: dialect, targets: dedupe(targets)}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, c := range in {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// rebind：将 ? 占位符按方言改写（postgres 使用 $n）
func (s *Store) rebind(q string) string {
	if s.dialect != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func where(extra ...string) string {
	conds := append(append([]string{}, eligible...), extra...)
	return " FROM spr WHERE " + strings.Join(conds, " AND ")
}

func dataErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDataLayer, op, err)
}

// ListTargetCountries：显式白名单（保持配置顺序），或数据集中有合格 locality 的全部国家（升序）
// 约束：数据集推导的列表天然不含 0 计数国家
func (s *Store) ListTargetCountries(ctx context.Context) ([]string, error) {
	if len(s.targets) > 0 {
		return append([]string(nil), s.targets...), nil
	}
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT country"+where("country IS NOT NULL", "country != ''")+" ORDER BY country")
	if err != nil {
		return nil, dataErr("list countries", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, dataErr("list countries", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, dataErr("list countries", err)
	}
	logger.L().Debug("boundary_countries", "count", len(out))
	return out, nil
}

func (s *Store) CountLocalities(ctx context.Context, country string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*)"+where("country = ?")), country).Scan(&n)
	if err != nil {
		return 0, dataErr("count "+country, err)
	}
	return n, nil
}

// prefixCond：区分大小写的名称前缀匹配；使用 substr 比较，用户输入中的 % 与 _ 按字面处理
func prefixCond(query string) (string, []any) {
	if query == "" {
		return "", nil
	}
	return "substr(name, 1, ?) = ?", []any{utf8.RuneCountInString(query), query}
}

// SearchLocalities：按名称升序分页检索；page 从 1 开始，Total 为过滤后的总数
func (s *Store) SearchLocalities(ctx context.Context, country, query string, page, limit int) (Page, error) {
	if page < 1 || limit < 1 {
		return Page{}, ErrInvalidPage
	}
	extra := []string{"country = ?"}
	args := []any{country}
	if c, a := prefixCond(query); c != "" {
		extra = append(extra, c)
		args = append(args, a...)
	}
	base := where(extra...)

	var total int
	if err := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*)"+base), args...).Scan(&total); err != nil {
		return Page{}, dataErr("search count "+country, err)
	}
	res := Page{Total: total, Page: page, Limit: limit, TotalPages: totalPages(total, limit), Items: []Locality{}}
	offset := (page - 1) * limit
	if offset >= total {
		return res, nil
	}

	q := "SELECT CAST(id AS TEXT), name, country, placetype, latitude, longitude, min_longitude, min_latitude, max_longitude, max_latitude" +
		base + " ORDER BY name ASC, id ASC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, s.rebind(q), append(args, limit, offset)...)
	if err != nil {
		return Page{}, dataErr("search "+country, err)
	}
	defer rows.Close()
	for rows.Next() {
		var l Locality
		if err := rows.Scan(&l.ID, &l.Name, &l.Country, &l.Placetype, &l.Latitude, &l.Longitude,
			&l.Bounds.MinLon, &l.Bounds.MinLat, &l.Bounds.MaxLon, &l.Bounds.MaxLat); err != nil {
			return Page{}, dataErr("search "+country, err)
		}
		res.Items = append(res.Items, l)
	}
	if err := rows.Err(); err != nil {
		return Page{}, dataErr("search "+country, err)
	}
	return res, nil
}

// ListAllLocalitiesWithBounds：全部国家的合格 locality（排除无国家记录），按国家、id 排序；仅供提取使用
func (s *Store) ListAllLocalitiesWithBounds(ctx context.Context) ([]LocalityBounds, error) {
	q := "SELECT CAST(id AS TEXT), country, min_longitude, min_latitude, max_longitude, max_latitude" +
		where("country IS NOT NULL", "country != ''") + " ORDER BY country, id"
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, dataErr("list bounds", err)
	}
	defer rows.Close()
	var out []LocalityBounds
	skipped := 0
	for rows.Next() {
		var l LocalityBounds
		if err := rows.Scan(&l.ID, &l.Country, &l.Bounds.MinLon, &l.Bounds.MinLat, &l.Bounds.MaxLon, &l.Bounds.MaxLat); err != nil {
			return nil, dataErr("list bounds", err)
		}
		if !l.Bounds.Valid() {
			skipped++
			continue
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, dataErr("list bounds", err)
	}
	logger.L().Debug("boundary_bounds_loaded", "count", len(out), "skipped", skipped)
	return out, nil
}

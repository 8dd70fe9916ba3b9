package boundary

import (
	"fmt"
	"math"
	"strconv"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const earthRadiusKm = 6371.0088

// Bounds：经纬度包围盒，序列化顺序与 pmtiles --bbox 一致
type Bounds struct {
	MinLon float64 `json:"minLon"`
	MinLat float64 `json:"minLat"`
	MaxLon float64 `json:"maxLon"`
	MaxLat float64 `json:"maxLat"`
}

// Valid：仅校验有序性与数值有限，不做地理合理性判断
func (b Bounds) Valid() bool {
	for _, v := range []float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.MinLon <= b.MaxLon && b.MinLat <= b.MaxLat
}

// String：minLon,minLat,maxLon,maxLat
func (b Bounds) String() string {
	return fmt.Sprintf("%s,%s,%s,%s", fmtCoord(b.MinLon), fmtCoord(b.MinLat), fmtCoord(b.MaxLon), fmtCoord(b.MaxLat))
}

func fmtCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (b Bounds) Rect() s2.Rect {
	return s2.Rect{
		Lat: r1.Interval{Lo: (s1.Angle(b.MinLat) * s1.Degree).Radians(), Hi: (s1.Angle(b.MaxLat) * s1.Degree).Radians()},
		Lng: s1.IntervalFromEndpoints((s1.Angle(b.MinLon) * s1.Degree).Radians(), (s1.Angle(b.MaxLon) * s1.Degree).Radians()),
	}
}

// AreaKm2：球面近似面积，仅用于日志字段
func (b Bounds) AreaKm2() float64 {
	return b.Rect().Area() * earthRadiusKm * earthRadiusKm
}

// Locality：WhosOnFirst spr 表中符合条件的 locality 记录
type Locality struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Placetype string  `json:"placetype"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Bounds    Bounds  `json:"bbox"`
}

// LocalityBounds：提取任务只需要身份与包围盒
type LocalityBounds struct {
	ID      string
	Country string
	Bounds  Bounds
}

type Page struct {
	Items      []Locality
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

func totalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

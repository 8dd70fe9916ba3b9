package boundary

import (
	_ "embed"
	"encoding/json"
)

//go:embed country-codes.json
var countryCodesJSON []byte

var countryNames = mustLoadCountryNames()

func mustLoadCountryNames() map[string]string {
	m := map[string]string{}
	if err := json.Unmarshal(countryCodesJSON, &m); err != nil {
		panic("boundary: bad country-codes.json: " + err.Error())
	}
	return m
}

// CountryName：ISO-3166 alpha-2 名称，未知代码原样返回
func CountryName(code string) string {
	if n, ok := countryNames[code]; ok {
		return n
	}
	return code
}

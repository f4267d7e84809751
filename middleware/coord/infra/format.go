package infra

import "strconv"

// parseCount lê contadores gravados via INCR; lixo vira 0.
func parseCount(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

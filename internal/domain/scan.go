package domain

// ScanResult es la evaluación de un símbolo en un ciclo de escaneo.
// Err != nil significa que no se pudieron obtener datos; Detection queda vacía.
type ScanResult struct {
	Symbol    string
	Ticker    TickerSnapshot
	LastClose float64
	Detection Detection
	Err       error
}

// Price devuelve el precio de referencia para entrar: el ticker si lo hay,
// si no el último cierre.
func (r ScanResult) Price() float64 {
	if r.Ticker.LastPrice > 0 {
		return r.Ticker.LastPrice
	}
	return r.LastClose
}

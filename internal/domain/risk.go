package domain

// RiskState agrupa los contadores mutables de vida del proceso. Antes eran
// globales ambientales; ahora es un record con dueño explícito (el
// SafetyGovernor) para poder construir estado fresco en cada test.
// Solo se resetea reiniciando el proceso.
type RiskState struct {
	ConsecutiveAPIErrors int
	LastTradedWindowID   WindowID
	TotalPredictions     int
	UpCount              int
	DownCount            int
	SkipCount            int
}

// RecordDecision actualiza los contadores con el resultado de un ciclo.
func (rs *RiskState) RecordDecision(d TradeDecision) {
	rs.TotalPredictions++
	if d.Skip != SkipNone {
		rs.SkipCount++
		return
	}
	switch d.Direction {
	case DirectionUp:
		rs.UpCount++
	case DirectionDown:
		rs.DownCount++
	}
}

// RecordOrderSuccess marca la ventana como operada y resetea la racha de
// errores de API.
func (rs *RiskState) RecordOrderSuccess(w WindowID) {
	rs.LastTradedWindowID = w
	rs.ConsecutiveAPIErrors = 0
}

// RecordOrderFailure incrementa la racha de errores de envío de órdenes.
func (rs *RiskState) RecordOrderFailure() {
	rs.ConsecutiveAPIErrors++
}

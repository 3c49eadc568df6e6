package models

// VectorStatus beschreibt den Indexierungs-Fortschritt eines Papers
// für genau eine Stufe (Text oder Bild).
type VectorStatus string

const (
	StatusPending    VectorStatus = "pending"
	StatusProcessing VectorStatus = "processing"
	StatusCompleted  VectorStatus = "completed"
	StatusFailed     VectorStatus = "failed"
	// StatusSkipped ist nur für den Bild-Status gültig: keine Quelle
	// oder keine Figuren gefunden. Blockiert die Readiness nie.
	StatusSkipped VectorStatus = "skipped"
)

// OverallStatus ist der aus beiden Stufen abgeleitete Gesamtstatus.
type OverallStatus string

const (
	OverallPending    OverallStatus = "pending"
	OverallProcessing OverallStatus = "processing"
	OverallCompleted  OverallStatus = "completed"
	OverallFailed     OverallStatus = "failed"
)

// DeriveOverallStatus leitet den Gesamtstatus aus Text- und Bild-Status ab.
// Die Regeln werden in dieser Reihenfolge ausgewertet:
//
//  1. beide pending            -> pending
//  2. Text completed           -> completed (die Bild-Stufe blockiert nie,
//     auch nicht solange sie noch läuft)
//  3. eine Stufe processing    -> processing
//  4. sonst                    -> failed
//
// Die Funktion ist pur und wird sowohl vom Status-Reporting als auch von
// der Pipeline selbst benutzt.
func DeriveOverallStatus(text, image VectorStatus) OverallStatus {
	switch {
	case text == StatusPending && image == StatusPending:
		return OverallPending
	case text == StatusCompleted:
		return OverallCompleted
	case text == StatusProcessing || image == StatusProcessing:
		return OverallProcessing
	default:
		return OverallFailed
	}
}

// IsReadyForRetrieval meldet, ob ein Paper für Retrieval-Anfragen
// nutzbar ist. Nur der Text-Status zählt.
func IsReadyForRetrieval(text VectorStatus) bool {
	return text == StatusCompleted
}

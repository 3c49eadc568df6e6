package services

import "errors"

// Fehler-Taxonomie der Pipeline. Stage-Fehler werden an der Worker-Grenze
// gefangen, mit Paper-Kontext geloggt und in einen terminalen Status
// übersetzt; sie crashen nie den Prozess.
var (
	// ErrSourceUnresolvable: keine Download-URL ableitbar (weder Open-Access,
	// arXiv noch Unpaywall-Auflösung).
	ErrSourceUnresolvable = errors.New("no download source resolvable")

	// ErrFetchFailed: Netzwerk-/HTTP-Fehler beim PDF-Abruf.
	ErrFetchFailed = errors.New("pdf fetch failed")

	// ErrCorruptDocument: PDF besteht die Strukturvalidierung nicht.
	ErrCorruptDocument = errors.New("corrupt pdf document")

	// ErrExtractionFailed: Textextraktion lieferte keinen nutzbaren Inhalt.
	ErrExtractionFailed = errors.New("text extraction produced no usable content")

	// ErrEmbeddingService: Fehler des Embedding-Service.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrVectorStoreUpload: Chunk-Upload in den Vektor-Store fehlgeschlagen.
	ErrVectorStoreUpload = errors.New("vector store upload failed")

	// ErrFigureDetection: Figure-Detection fehlgeschlagen.
	ErrFigureDetection = errors.New("figure detection failed")

	// ErrFigureAnalysis: Captioning/Analyse einer Figur fehlgeschlagen.
	ErrFigureAnalysis = errors.New("figure analysis failed")

	// ErrEmbeddingUnavailable: für einen Similarity-Kandidaten fehlt das
	// Embedding. Der Kandidat wird ausgeschlossen, nicht mit 0 gefüllt.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable for candidate")

	// ErrCheckpointCorrupt: Checkpoint-Datei unlesbar. Wird wie "kein
	// Checkpoint" behandelt und nie an den Aufrufer durchgereicht.
	ErrCheckpointCorrupt = errors.New("checkpoint file corrupt")
)

package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-atlas/config"
)

// Die Job-IDs sind der Dedup-Schlüssel im Broker: gleiche Stufe + gleiches
// Paper muss immer dieselbe ID ergeben.
func TestJobIDsAreDeterministic(t *testing.T) {
	assert.Equal(t, "download-abc", DownloadJobID("abc"))
	assert.Equal(t, "indexing-abc", IndexingJobID("abc"))
	assert.Equal(t, "figure-analysis-abc", FigureJobID("abc"))
	assert.Equal(t, "reindex-abc", ReindexJobID("abc"))

	assert.Equal(t, DownloadJobID("p1"), DownloadJobID("p1"))
	assert.NotEqual(t, DownloadJobID("p1"), IndexingJobID("p1"), "Stufen kollidieren nicht")
	assert.NotEqual(t, IndexingJobID("p1"), ReindexJobID("p1"))
}

func TestPayloadRoundtrip(t *testing.T) {
	p := Payload{PaperID: "p1", CollectionID: 7, StorageKey: "pdfs/p1.pdf", DetectOnly: true}

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var got Payload
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, p, got)

	// Optionale Felder verschwinden aus der Payload.
	minimal, err := json.Marshal(Payload{PaperID: "p2"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"paperId":"p2"}`, string(minimal))
}

func TestRedisOpt(t *testing.T) {
	opt := RedisOpt(&config.Config{RedisAddr: "localhost:6379", RedisPassword: "pw"})
	assert.Equal(t, "localhost:6379", opt.Addr)
	assert.Equal(t, "pw", opt.Password)
}

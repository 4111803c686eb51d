package corpus_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
	"github.com/secmon-lab/reviewsage/pkg/service/corpus"
)

const sampleCSV = `name,country,date,review_score,review_header,review_body
Alice,FR,2024-03-01,5,Great value,"Cheap servers. Fast network."
Bob,DE,"Mar 4, 2024",2,Slow support,Tickets take days.
Carol,US,,,,
`

func TestLoadCSV(t *testing.T) {
	records, err := corpus.LoadCSV(strings.NewReader(sampleCSV), "ovh")
	gt.NoError(t, err).Required()
	gt.Array(t, records).Length(3).Required()

	gt.Value(t, records[0].ID).Equal("ovh_0")
	gt.Value(t, records[0].Group).Equal(types.GroupTag("ovh"))
	gt.Value(t, records[0].Rating).Equal(5)
	gt.Value(t, records[0].Title).Equal("Great value")
	gt.Value(t, records[0].Body).Equal("Cheap servers. Fast network.")
	gt.Value(t, records[0].Author).Equal("Alice")
	gt.Value(t, records[0].Country).Equal("FR")
	gt.Value(t, records[0].Timestamp).Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	gt.Value(t, records[1].Timestamp).Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))

	// Incomplete rows load but fail validation
	gt.Value(t, records[2].Rating).Equal(0)
	gt.Error(t, records[2].Validate())
}

func TestLoadCSV_MissingColumn(t *testing.T) {
	_, err := corpus.LoadCSV(strings.NewReader("name,date\nA,2024-01-01\n"), "ovh")
	gt.Error(t, err)
}

func TestGroupFromFilename(t *testing.T) {
	g, err := corpus.GroupFromFilename("/data/reviews/Digital Ocean.csv")
	gt.NoError(t, err).Required()
	gt.Value(t, g).Equal(types.GroupTag("digital_ocean"))

	_, err = corpus.GroupFromFilename("bad!name.csv")
	gt.Error(t, err)
}

func TestLoadCSVDir(t *testing.T) {
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "ovh.csv"), []byte(sampleCSV), 0600)).Required()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "hetzner.csv"), []byte(sampleCSV), 0600)).Required()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0600)).Required()

	records, err := corpus.LoadCSVDir(dir)
	gt.NoError(t, err).Required()
	gt.Array(t, records).Length(6).Required()
	gt.Value(t, records[0].ID).Equal("hetzner_0")
	gt.Value(t, records[3].ID).Equal("ovh_0")

	_, err = corpus.LoadCSVDir(t.TempDir())
	gt.Error(t, err)
}

func TestParseGCSURL(t *testing.T) {
	bucket, prefix, err := corpus.ParseGCSURL("gs://reviews-bucket/raw/2024")
	gt.NoError(t, err).Required()
	gt.Value(t, bucket).Equal("reviews-bucket")
	gt.Value(t, prefix).Equal("raw/2024")

	bucket, prefix, err = corpus.ParseGCSURL("gs://reviews-bucket")
	gt.NoError(t, err).Required()
	gt.Value(t, bucket).Equal("reviews-bucket")
	gt.Value(t, prefix).Equal("")

	_, _, err = corpus.ParseGCSURL("s3://x")
	gt.Error(t, err)
}

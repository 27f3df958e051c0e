package forecast

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
)

// Artifact is the on-disk form of a trained pipeline.
type Artifact struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Pipeline  *Pipeline `json:"pipeline"`
}

const artifactVersion = 1

// SaveArtifact writes the pipeline to path as JSON.
func SaveArtifact(path string, p *Pipeline) error {
	a := Artifact{
		Version:   artifactVersion,
		CreatedAt: time.Now().UTC(),
		Pipeline:  p,
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return eris.Wrap(err, "forecast: marshal artifact")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "forecast: write artifact")
	}
	return nil
}

// LoadArtifact reads a pipeline back from path. A missing file gets a
// message pointing at the train command rather than a bare ENOENT.
func LoadArtifact(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Errorf("forecast: no model artifact at %s: run `velocast train` first", path)
		}
		return nil, eris.Wrap(err, "forecast: read artifact")
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrap(err, "forecast: parse artifact")
	}
	if a.Version != artifactVersion {
		return nil, eris.Errorf("forecast: unsupported artifact version %d", a.Version)
	}
	if a.Pipeline == nil || a.Pipeline.Booster == nil || a.Pipeline.Encoder == nil || a.Pipeline.Scaler == nil {
		return nil, eris.New("forecast: artifact is incomplete")
	}
	return a.Pipeline, nil
}

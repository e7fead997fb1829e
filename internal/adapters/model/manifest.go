// Package model carga el artefacto ONNX y expone el scorer como
// ports.Predictor. El modelo es opaco: aquí no hay semántica de features,
// solo forma del vector y decodificación de la salida.
package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lod61/poly-model-auto-trading/internal/features"
)

// manifestFile es el metadata.json que acompaña al artefacto.
type manifestFile struct {
	FeatureNames []string `json:"feature_names"`
	NFeatures    int      `json:"n_features"`
}

// LoadManifest lee el manifest del modelo. El arranque debe fallar si no
// existe o no cuadra: operar con una forma de vector inventada es peor que
// no operar.
func LoadManifest(path string) (features.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return features.Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}

	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return features.Manifest{}, fmt.Errorf("manifest %s: parse: %w", path, err)
	}
	if len(mf.FeatureNames) == 0 {
		return features.Manifest{}, fmt.Errorf("manifest %s: sin feature_names", path)
	}
	if mf.NFeatures != 0 && mf.NFeatures != len(mf.FeatureNames) {
		return features.Manifest{}, fmt.Errorf("manifest %s: n_features=%d pero hay %d nombres",
			path, mf.NFeatures, len(mf.FeatureNames))
	}

	return features.Manifest{
		FeatureNames: mf.FeatureNames,
		Count:        len(mf.FeatureNames),
	}, nil
}

package model

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
	"github.com/lod61/poly-model-auto-trading/internal/features"
)

const (
	outputLabel       = "output_label"
	outputProbability = "output_probability"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initRuntime inicializa el runtime de ONNX una sola vez por proceso.
// libraryPath apunta a libonnxruntime.so; vacío usa la búsqueda por defecto.
func initRuntime(libraryPath string) error {
	ortInitOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// Scorer implementa ports.Predictor sobre una sesión ONNX. El grafo exporta
// dos salidas: la etiqueta dura (int64) y el par de probabilidades
// [P(down), P(up)] (float32). Si el par no está disponible se degrada a la
// etiqueta con probabilidades fijas configurables.
type Scorer struct {
	session      *ort.DynamicAdvancedSession
	inputName    string
	outputNames  []string
	hasProb      bool
	featureCount int

	// Probabilidad asignada al lado predicho cuando solo hay etiqueta dura.
	fallbackUp float64
}

// NewScorer carga el artefacto y construye la sesión. Falla en el arranque
// (no en el primer ciclo) si el modelo no se puede cargar o su forma de
// entrada no coincide con el manifest.
func NewScorer(modelPath, libraryPath string, manifest features.Manifest, labelFallbackUp float64) (*Scorer, error) {
	if err := initRuntime(libraryPath); err != nil {
		return nil, fmt.Errorf("%w: runtime init: %v", domain.ErrModelNotLoaded, err)
	}
	if labelFallbackUp <= 0.5 || labelFallbackUp >= 1 {
		labelFallbackUp = 0.55
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect %s: %v", domain.ErrModelNotLoaded, modelPath, err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%w: se esperaba 1 entrada, hay %d", domain.ErrModelNotLoaded, len(inputs))
	}

	// La dimensión de entrada es [batch, n]; batch puede ser dinámica (-1).
	inShape := inputs[0].Dimensions
	if len(inShape) == 2 && inShape[1] > 0 && int(inShape[1]) != manifest.Count {
		return nil, fmt.Errorf("%w: modelo espera %d features, manifest declara %d",
			domain.ErrModelNotLoaded, inShape[1], manifest.Count)
	}

	hasProb := false
	outputNames := make([]string, 0, len(outputs))
	for _, out := range outputs {
		outputNames = append(outputNames, out.Name)
		if out.Name == outputProbability {
			hasProb = true
		}
	}
	if !hasProb {
		slog.Warn("model: artefacto sin salida de probabilidades, se usará fallback de etiqueta",
			"outputs", outputNames,
		)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inputs[0].Name}, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", domain.ErrModelNotLoaded, modelPath, err)
	}

	slog.Info("model: artefacto cargado",
		"path", modelPath,
		"features", manifest.Count,
		"prob_output", hasProb,
	)

	return &Scorer{
		session:      session,
		inputName:    inputs[0].Name,
		outputNames:  outputNames,
		hasProb:      hasProb,
		featureCount: manifest.Count,
		fallbackUp:   labelFallbackUp,
	}, nil
}

// FeatureCount devuelve la longitud de vector que espera el modelo.
func (s *Scorer) FeatureCount() int {
	return s.featureCount
}

// Close libera la sesión.
func (s *Scorer) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}

// Predict ejecuta una inferencia sobre un vector ya validado en forma.
func (s *Scorer) Predict(featureVec []float64) (domain.Prediction, error) {
	if s.session == nil {
		return domain.Prediction{}, domain.ErrModelNotLoaded
	}
	if len(featureVec) != s.featureCount {
		return domain.Prediction{}, fmt.Errorf("%w: vector de %d, modelo espera %d",
			domain.ErrFeatureShapeMismatch, len(featureVec), s.featureCount)
	}

	input32 := make([]float32, len(featureVec))
	for i, v := range featureVec {
		input32[i] = float32(v)
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(s.featureCount)), input32)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: input tensor: %v", domain.ErrInference, err)
	}
	defer inputTensor.Destroy()

	// Las salidas nil las reserva el runtime con la forma real del grafo.
	outputs := make([]ort.Value, len(s.outputNames))
	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: run: %v", domain.ErrInference, err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	probUp, usedFallback := s.decode(outputs)

	return domain.Prediction{
		ProbabilityUp:     probUp,
		GeneratedAt:       time.Now().UTC(),
		UsedLabelFallback: usedFallback,
	}, nil
}

// decode extrae los datos crudos de las salidas y aplica la política de
// scoreFromOutputs. Extraer nunca falla el ciclo: sin salidas utilizables
// la predicción es neutral.
func (s *Scorer) decode(outputs []ort.Value) (float64, bool) {
	var probs []float32
	var label int64
	haveLabel := false

	for i, name := range s.outputNames {
		if outputs[i] == nil {
			continue
		}
		switch name {
		case outputProbability:
			if t, ok := outputs[i].(*ort.Tensor[float32]); ok {
				probs = t.GetData()
			}
		case outputLabel:
			if t, ok := outputs[i].(*ort.Tensor[int64]); ok {
				data := t.GetData()
				if len(data) >= 1 {
					label = data[0]
					haveLabel = true
				}
			}
		}
	}

	if len(probs) < 2 && !haveLabel {
		slog.Warn("model: salidas sin probabilidad ni etiqueta, predicción neutral")
	}
	return scoreFromOutputs(probs, label, haveLabel, s.fallbackUp)
}

// scoreFromOutputs convierte las salidas crudas en P(up): el par de
// probabilidades [P(down), P(up)] si es válido; si no, la etiqueta dura con
// probabilidad fija hacia el lado predicho; sin ninguna de las dos, 0.5
// neutral. El bool indica que se usó el fallback de etiqueta.
func scoreFromOutputs(probs []float32, label int64, haveLabel bool, fallbackUp float64) (float64, bool) {
	if len(probs) >= 2 {
		p := float64(probs[len(probs)-1])
		if !math.IsNaN(p) && p >= 0 && p <= 1 {
			return p, false
		}
	}
	if !haveLabel {
		return 0.5, false
	}
	switch label {
	case 1:
		return fallbackUp, true
	case 0:
		return 1 - fallbackUp, true
	default:
		return 0.5, true
	}
}

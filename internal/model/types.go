package model

// Metadata describes a fixed-shape ONNX model exported next to its weights.
type Metadata struct {
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	ImageSize   int     `json:"image_size"`
}

// Prediction is one ranked label with its confidence in percent.
type Prediction struct {
	Label string  `json:"label" example:"Labrador retriever"`
	Score float32 `json:"score" example:"87.5"`
}

type PredictionResponse struct {
	Predictions []Prediction `json:"predictions"`
}

type CaptionResponse struct {
	SimpleCaption   string `json:"simple_caption" example:"a dog sitting on the grass"`
	DetailedCaption string `json:"detailed_caption" example:"a photography of a dog sitting on the grass"`
}

// Endpoint is one entry of the discovery document.
type Endpoint struct {
	Route       string
	Description string
}

type DiscoveryResponse struct {
	Message   string            `json:"message"`
	Endpoints map[string]string `json:"endpoints"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

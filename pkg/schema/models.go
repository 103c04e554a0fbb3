package schema

// BaseModel is the base architecture a model targets.
type BaseModel string

const (
	BaseAny         BaseModel = "any"
	BaseSD1         BaseModel = "sd-1"
	BaseSD2         BaseModel = "sd-2"
	BaseSD3         BaseModel = "sd-3"
	BaseSDXL        BaseModel = "sdxl"
	BaseSDXLRefiner BaseModel = "sdxl-refiner"
	BaseFlux        BaseModel = "flux"
)

// ModelType is the model category in the manager's taxonomy.
type ModelType string

const (
	ModelTypeMain       ModelType = "main"
	ModelTypeVAE        ModelType = "vae"
	ModelTypeLoRA       ModelType = "lora"
	ModelTypeControlNet ModelType = "controlnet"
	ModelTypeEmbedding  ModelType = "embedding"
	ModelTypeT5Encoder  ModelType = "t5_encoder"
	ModelTypeCLIPEmbed  ModelType = "clip_embed"
	ModelTypeIPAdapter  ModelType = "ip_adapter"
)

// ModelRecord is one entry of the server's model inventory.
type ModelRecord struct {
	Key         string    `json:"key"`
	Hash        string    `json:"hash"`
	Name        string    `json:"name"`
	Base        BaseModel `json:"base"`
	Type        ModelType `json:"type"`
	Path        string    `json:"path,omitempty"`
	Format      string    `json:"format,omitempty"`
	Description string    `json:"description,omitempty"`
}

// ModelList is the inventory listing response.
type ModelList struct {
	Models []ModelRecord `json:"models"`
}

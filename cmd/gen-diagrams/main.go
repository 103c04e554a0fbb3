// gen-diagrams generates sample diagram outputs for README documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/CodeGandee/invokeai-go-client/internal/diagram"
	"github.com/CodeGandee/invokeai-go-client/pkg/workflow"
)

// sampleExport is a minimal SDXL text-to-image export, captured mid-run in
// the rendered statuses below.
const sampleExport = `{
  "name": "SDXL Text to Image",
  "meta": {"version": "3.0.0"},
  "nodes": [
    {"id": "model_loader", "type": "invocation", "data": {"id": "model_loader", "type": "sdxl_model_loader", "inputs": {
      "model": {"name": "model", "value": {"key": "jugg-xl", "name": "Juggernaut XL", "base": "sdxl", "type": "main"}}
    }}},
    {"id": "positive_prompt", "type": "invocation", "data": {"id": "positive_prompt", "type": "sdxl_compel_prompt", "label": "Positive Prompt", "inputs": {
      "prompt": {"name": "prompt", "value": "a lighthouse at dusk"}
    }}},
    {"id": "negative_prompt", "type": "invocation", "data": {"id": "negative_prompt", "type": "sdxl_compel_prompt", "label": "Negative Prompt", "inputs": {
      "prompt": {"name": "prompt", "value": ""}
    }}},
    {"id": "noise", "type": "invocation", "data": {"id": "noise", "type": "noise", "inputs": {
      "seed": {"name": "seed", "value": 42},
      "width": {"name": "width", "value": 1024},
      "height": {"name": "height", "value": 1024}
    }}},
    {"id": "denoise", "type": "invocation", "data": {"id": "denoise", "type": "denoise_latents", "inputs": {
      "steps": {"name": "steps", "value": 30}
    }}},
    {"id": "decode", "type": "invocation", "data": {"id": "decode", "type": "l2i", "inputs": {
      "latents": {"name": "latents"},
      "board": {"name": "board"}
    }}},
    {"id": "save", "type": "invocation", "data": {"id": "save", "type": "save_image", "label": "Save Image", "inputs": {
      "image": {"name": "image"},
      "board": {"name": "board"}
    }}}
  ],
  "edges": [
    {"id": "e1", "type": "default", "source": "model_loader", "target": "denoise", "sourceHandle": "unet", "targetHandle": "unet"},
    {"id": "e2", "type": "default", "source": "positive_prompt", "target": "denoise", "sourceHandle": "conditioning", "targetHandle": "positive_conditioning"},
    {"id": "e3", "type": "default", "source": "negative_prompt", "target": "denoise", "sourceHandle": "conditioning", "targetHandle": "negative_conditioning"},
    {"id": "e4", "type": "default", "source": "noise", "target": "denoise", "sourceHandle": "noise", "targetHandle": "noise"},
    {"id": "e5", "type": "default", "source": "denoise", "target": "decode", "sourceHandle": "latents", "targetHandle": "latents"},
    {"id": "e6", "type": "default", "source": "decode", "target": "save", "sourceHandle": "image", "targetHandle": "image"}
  ]
}`

func main() {
	wf, err := workflow.Load([]byte(sampleExport))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load error: %v\n", err)
		os.Exit(1)
	}

	// A run caught between denoising and decoding.
	statuses := map[string]string{
		"model_loader":    "completed",
		"positive_prompt": "completed",
		"negative_prompt": "completed",
		"noise":           "completed",
		"denoise":         "running",
		"decode":          "pending",
		"save":            "pending",
	}

	model, err := diagram.Build(wf.Definition(), wf.OutputNodeIDs(), statuses)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build error: %v\n", err)
		os.Exit(1)
	}

	outDir := filepath.Join("docs", "assets")
	os.MkdirAll(outDir, 0o755)

	ascii := diagram.RenderASCII(model)
	os.WriteFile(filepath.Join(outDir, "diagram-ascii.txt"), []byte(ascii), 0o644)
	fmt.Println("=== ASCII ===")
	fmt.Println(ascii)

	mermaid := diagram.RenderMermaid(model)
	os.WriteFile(filepath.Join(outDir, "diagram-mermaid.md"), []byte("```mermaid\n"+mermaid+"\n```\n"), 0o644)
	fmt.Println("=== Mermaid ===")
	fmt.Println(mermaid)

	png, imgErr := diagram.RenderImage(model)
	if imgErr != nil {
		fmt.Fprintf(os.Stderr, "image error: %v\n", imgErr)
	} else {
		pngPath := filepath.Join(outDir, "diagram-sample.png")
		os.WriteFile(pngPath, png, 0o644)
		fmt.Printf("=== Image (PNG) ===\nWritten: %s (%d bytes)\n", pngPath, len(png))
	}
}

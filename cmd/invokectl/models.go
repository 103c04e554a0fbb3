package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/CodeGandee/invokeai-go-client/pkg/client"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

func runModels(args []string) error {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	base := fs.String("base", "", "filter by base architecture (sd-1, sdxl, flux, ...)")
	mtype := fs.String("type", "", "filter by model type (main, vae, lora, ...)")
	name := fs.String("name", "", "filter by model name")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: invokectl models [flags]

List the models installed on the server.

Flags:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	a := newApp()
	c, err := a.client()
	if err != nil {
		return err
	}

	models, err := c.ListModels(context.Background(), client.ListModelsOptions{
		Base: schema.BaseModel(*base),
		Type: schema.ModelType(*mtype),
		Name: *name,
	})
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Println("no models match")
		return nil
	}

	fmt.Printf("%-36s %-12s %-12s %s\n", "NAME", "BASE", "TYPE", "KEY")
	for _, m := range models {
		fmt.Printf("%-36s %-12s %-12s %s\n", truncate(m.Name, 36), m.Base, m.Type, m.Key)
	}
	return nil
}

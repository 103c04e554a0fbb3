package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

func runBoards(args []string) error {
	fs := flag.NewFlagSet("boards", flag.ExitOnError)
	create := fs.String("create", "", "create a board with this name")
	images := fs.String("images", "", "list the image names on this board ID")
	all := fs.Bool("all", false, "include the uncategorized pseudo-board")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: invokectl boards [flags]

List the image boards on the server, create one, or list a board's
image names.

Flags:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a := newApp()
	c, err := a.client()
	if err != nil {
		return err
	}

	if *create != "" {
		board, err := c.CreateBoard(ctx, *create)
		if err != nil {
			return err
		}
		fmt.Printf("created board %s (%s)\n", board.BoardName, board.BoardID)
		return nil
	}

	if *images != "" {
		names, err := c.BoardImageNames(ctx, *images)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	}

	boards, err := c.ListBoards(ctx, *all)
	if err != nil {
		return err
	}
	fmt.Printf("%-36s %-8s %s\n", "NAME", "IMAGES", "ID")
	for _, b := range boards {
		fmt.Printf("%-36s %-8d %s\n", truncate(b.BoardName, 36), b.ImageCount, b.BoardID)
	}
	return nil
}

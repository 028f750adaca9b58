package kdgo_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hupe1980/kdgo"
)

func Example() {
	ctx := context.Background()

	db, err := kdgo.KDTree[float64, string]().Build()
	if err != nil {
		log.Fatal(err)
	}

	db.Insert(ctx, [2]float64{0, 0}, "origin")
	db.Insert(ctx, [2]float64{10, 0}, "east")
	db.Insert(ctx, [2]float64{0, 10}, "north")

	results, err := db.KNNSearch(ctx, [2]float64{1, 1}, 1)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(results[0].Value, results[0].Distance)
	// Output: origin 2
}

func Example_rangeSearch() {
	ctx := context.Background()

	db := kdgo.KDTree[float64, int]().MustBuild()
	db.Insert(ctx, [2]float64{0, 0}, 1)
	db.Insert(ctx, [2]float64{3, 4}, 2)
	db.Insert(ctx, [2]float64{8, 8}, 3)

	// Squared radius: 25 covers Euclidean distance 5.
	results, err := db.RangeSearch(ctx, [2]float64{0, 0}, 25)
	if err != nil {
		log.Fatal(err)
	}

	for _, r := range results {
		fmt.Println(r.Value, r.Distance)
	}
	// Output:
	// 1 0
	// 2 25
}

func Example_snapshot() {
	ctx := context.Background()

	db := kdgo.KDTree[float64, string]().MustBuild()
	db.Insert(ctx, [2]float64{1, 2}, "a")
	db.Insert(ctx, [2]float64{3, 4}, "b")

	dir, err := os.MkdirTemp("", "kdgo")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "tree.kdg")
	if err := db.SaveToFile(ctx, path); err != nil {
		log.Fatal(err)
	}

	restored, err := kdgo.NewFromFile[float64, string](path)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(restored.Len())
	// Output: 2
}

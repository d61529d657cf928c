package shm_test

import (
	"context"
	"fmt"

	"github.com/srediag/detection-shm/pkg/shm"
)

func ExampleOpen() {
	ctx := context.Background()
	region, err := shm.Open(ctx, shm.Options{Name: "/example_detections", Size: 244})
	if err != nil {
		fmt.Println("failed to open region:", err)
		return
	}
	defer func() { _ = shm.Remove("/example_detections") }()
	defer region.Close()

	copy(region.Bytes(), []byte("hello world"))
	fmt.Println(string(region.Bytes()[:11]))
}

package main

import "github.com/keilerkonzept/serial-plotter/internal/stream"

// calibrationTransform turns the last three numeric fields of a record (a
// magnetometer's x, y and z) into the three planar projections xy, yz and zx.
// Records with fewer than three numbers come back empty and count as malformed.
func calibrationTransform(rec stream.Record) stream.Record {
	var nums []float64
	for _, f := range rec.Fields {
		if f.Value.IsNumber() {
			nums = append(nums, f.Value.Num)
		}
	}
	if len(nums) < 3 {
		return stream.Record{}
	}
	nums = nums[len(nums)-3:]
	x, y, z := nums[0], nums[1], nums[2]
	return stream.Record{Fields: []stream.Field{
		{Key: stream.Name("xy"), Value: stream.Pair(x, y)},
		{Key: stream.Name("yz"), Value: stream.Pair(y, z)},
		{Key: stream.Name("zx"), Value: stream.Pair(z, x)},
	}}
}

package pool

// Shard splits files into contiguous chunks of ceil(len(files)/units) files.
// Every chunk is non-empty; when there are fewer files than units there are
// fewer chunks than units. The chunks alias files.
func Shard(files []string, units int) [][]string {
	if len(files) == 0 {
		return nil
	}
	if units < 1 {
		units = 1
	}
	size := (len(files) + units - 1) / units
	shards := make([][]string, 0, (len(files)+size-1)/size)
	for start := 0; start < len(files); start += size {
		end := min(start+size, len(files))
		shards = append(shards, files[start:end:end])
	}
	return shards
}

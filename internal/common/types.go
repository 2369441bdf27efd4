package common

// KeyValue is the record unit flowing through the shuffle: produced by
// map tasks, pre-aggregated by combiners, merged on the reduce side.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SplitLocation tells a fetcher where one map task's output lives.
// Produced once per map task, immutable afterwards.
type SplitLocation struct {
	MapTask   int    `json:"map_task"`   // map task index (split ordinal)
	ServerURI string `json:"server_uri"` // base URI of the file server holding the blocks
}

package scriptx

type byScriptVersion []Script

func (b byScriptVersion) Len() int           { return len(b) }
func (b byScriptVersion) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }
func (b byScriptVersion) Less(i, j int) bool { return b[i].Version < b[j].Version }

type byRecordVersion []Record

func (b byRecordVersion) Len() int           { return len(b) }
func (b byRecordVersion) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }
func (b byRecordVersion) Less(i, j int) bool { return b[i].Version < b[j].Version }

package migrate

// Stage names a step of the per-image pipeline.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageUpload  Stage = "upload"
	StageRewrite Stage = "rewrite"
	StageSave    Stage = "save"
)

// Observer is notified as images move through the pipeline.
type Observer interface {
	ImageDownloaded(bytes int64)
	ImageMigrated()
	DuplicateReused()
	StageFailed(stage Stage)
}

type noopObserver struct{}

func (noopObserver) ImageDownloaded(int64) {}
func (noopObserver) ImageMigrated()        {}
func (noopObserver) DuplicateReused()      {}
func (noopObserver) StageFailed(Stage)     {}

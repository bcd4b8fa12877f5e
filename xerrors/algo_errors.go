package xerrors

var (
	// ErrEmptyData 输入数据为空。
	ErrEmptyData = New(ErrInvalidArg, 400001, "empty data", "input data must not be empty", nil)
	// ErrInvalidInput 输入格式错误。
	ErrInvalidInput = New(ErrInvalidArg, 400002, "invalid input", "check your input parameters", nil)
	// ErrInvalidConfig 超参数配置错误。
	ErrInvalidConfig = New(ErrInvalidArg, 400005, "invalid config", "hyperparameters out of range", nil)
	// ErrDimMismatch 维度不匹配.
	ErrDimMismatch = New(ErrInvalidArg, 400007, "dimension mismatch", "matrix or vector dimensions do not match", nil)
	// ErrEmptyPopulation 无法从空的下标区间中采样。
	ErrEmptyPopulation = New(ErrInvalidArg, 400019, "empty population", "cannot draw a bootstrap sample from zero rows", nil)
	// ErrInvalidWorkers 并行度必须为正。
	ErrInvalidWorkers = New(ErrInvalidArg, 400020, "invalid workers", "worker count must be at least 1", nil)
	// ErrUnsupportedFormat 不支持的模型编码格式。
	ErrUnsupportedFormat = New(ErrInvalidArg, 400021, "unsupported format", "supported formats: binary, binary+zstd, json, yaml", nil)
	// ErrNotFitted 模型尚未训练。
	ErrNotFitted = New(ErrFailedPrecondition, 412001, "model not fitted", "call Fit before predicting", nil)
	// ErrEmptyForest 森林中没有任何基学习器。
	ErrEmptyForest = New(ErrFailedPrecondition, 412002, "empty forest", "a forest with zero trees cannot produce a decision score", nil)
	// ErrCorruptModel 模型数据损坏或版本不符。
	ErrCorruptModel = New(ErrDataLoss, 422001, "corrupt model", "encoded model could not be decoded", nil)
	// ErrPoolClosed 工作池已关闭。
	ErrPoolClosed = New(ErrInternal, 500008, "worker pool is closed", "submit before calling Wait", nil)
	// ErrTaskPanic 工作任务发生 panic。
	ErrTaskPanic = New(ErrInternal, 500009, "worker task panic", "a task panicked and was recovered", nil)
	// ErrObjectNotFound 存储中不存在该对象。
	ErrObjectNotFound = New(ErrNotFound, 404001, "object not found", "no artifact stored under this name", nil)
)

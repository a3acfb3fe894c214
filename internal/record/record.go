// Package record 负责部署记录的持久化、发布与离线发现。
// 每次成功召唤产生一条记录，记录是外部还原组件全集的唯一入口。
package record

import (
	xerrors "GuildForge-Chain/internal/errors"
)

// Record 是一次成功部署的落库结构。地址一律以带 0x 前缀的
// 十六进制字符串存储，金额以十进制字符串存储。
type Record struct {
	ID                string `json:"id"`
	Summoner          string `json:"summoner"`
	Moloch            string `json:"moloch"`
	DistributionToken string `json:"distribution_token"`
	Minion            string `json:"minion"`
	Transmuter        string `json:"transmuter"`
	Trust             string `json:"trust"`
	TotalDistributed  string `json:"total_distributed"`
	UnlockAt          int64  `json:"unlock_at"`
	BlockHeight       uint64 `json:"block_height"`
	CreatedAt         int64  `json:"created_at"`
}

var (
	// ErrRecordNotFound 表示指定的部署记录不存在。
	ErrRecordNotFound = xerrors.New(CodeRecordNotFound, "deployment record not found")
	// ErrRecordConflict 表示记录 ID 已存在。
	ErrRecordConflict = xerrors.New(CodeRecordConflict, "deployment record already exists", xerrors.WithSeverity(xerrors.SeverityWarning))
)

const (
	CodeRecordNotFound xerrors.Code = "RECORD_NOT_FOUND"
	CodeRecordConflict xerrors.Code = "RECORD_CONFLICT"
	CodeRecordPublish  xerrors.Code = "RECORD_PUBLISH_FAILED"
)

func init() {
	xerrors.Register(CodeRecordNotFound, xerrors.Attributes{
		Message:   "deployment record not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeRecordConflict, xerrors.Attributes{
		Message:   "deployment record already exists",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeRecordPublish, xerrors.Attributes{
		Message:   "failed to publish deployment record",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}

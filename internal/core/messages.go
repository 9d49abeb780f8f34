package core

import "maps"

// Message table codes.
const (
	MsgInsertFailed          = 100
	MsgUpdateFailed          = 101
	MsgDeleteFailed          = 102
	MsgFindOneFailed         = 103
	MsgFindManyFailed        = 104
	MsgAggregateFailed       = 105
	MsgDuplicateKey          = 106
	MsgInvalidCollectionName = 107
)

// Message is one localized message table entry.
type Message struct {
	Code int    `mapstructure:"msg_code" json:"msg_code"`
	Zh   string `mapstructure:"msg_zh" json:"msg_zh"`
	En   string `mapstructure:"msg_en" json:"msg_en"`
}

// Messages maps message codes to entries.
type Messages map[int]Message

var defaultMessages = Messages{
	MsgInsertFailed:          {Code: MsgInsertFailed, Zh: "插入文档失败,检查字段是否正确.", En: "Failed to insert document, please check the fields."},
	MsgUpdateFailed:          {Code: MsgUpdateFailed, Zh: "更新文档失败,检查字段是否正确.", En: "Failed to update document, please check the fields."},
	MsgDeleteFailed:          {Code: MsgDeleteFailed, Zh: "删除文档失败,检查查询条件是否正确.", En: "Failed to delete document, please check the filter."},
	MsgFindOneFailed:         {Code: MsgFindOneFailed, Zh: "查询单个文档失败,检查查询条件是否正确.", En: "Failed to find document, please check the filter."},
	MsgFindManyFailed:        {Code: MsgFindManyFailed, Zh: "查询多个文档失败,检查查询条件是否正确.", En: "Failed to find documents, please check the filter."},
	MsgAggregateFailed:       {Code: MsgAggregateFailed, Zh: "聚合查询文档失败,检查聚合条件是否正确.", En: "Failed to aggregate documents, please check the pipeline."},
	MsgDuplicateKey:          {Code: MsgDuplicateKey, Zh: "数据已存在,唯一键冲突.", En: "Document already exists, duplicate key."},
	MsgInvalidCollectionName: {Code: MsgInvalidCollectionName, Zh: "无效的集合名称.", En: "Invalid collection name."},
}

// DefaultMessages returns a copy of the built-in message table.
func DefaultMessages() Messages {
	return maps.Clone(defaultMessages)
}

// MergeMessages returns base with overrides applied by code. An override is used
// only when it has all fields and its code exists in base; others are ignored.
func MergeMessages(base Messages, overrides []Message) Messages {
	out := maps.Clone(base)
	for _, m := range overrides {
		if m.Code == 0 || m.Zh == "" || m.En == "" {
			continue
		}
		if _, ok := out[m.Code]; !ok {
			continue
		}
		out[m.Code] = m
	}
	return out
}

// Text returns the message for code in the selected locale.
func (m Messages) Text(code int, useZh bool) string {
	msg, ok := m[code]
	if !ok {
		return ""
	}
	if useZh {
		return msg.Zh
	}
	return msg.En
}

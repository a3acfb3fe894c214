// Package config 解析 guildforged 的 JSON 配置文件，
// 并为缺省字段补齐默认值。
package config

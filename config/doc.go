// Package config 提供 imageflow 的配置管理功能。
//
// 配置来源按优先级依次为默认值、YAML 文件和 IMAGEFLOW_ 前缀的环境变量。
package config

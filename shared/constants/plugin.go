package constants

import "chunked-loader/shared/tuple"

// PluginName — имя плагина; бэкенд маршрутизирует по нему запросы всех экранов админки.
const PluginName = "peek_abstract_chunked_data_loader"

// PluginFilter возвращает общий фильтр плагина. Каждый вызов отдает новую карту.
func PluginFilter() tuple.Filter {
	return tuple.Filter{"plugin": PluginName}
}
